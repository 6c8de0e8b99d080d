package server

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/benmeehan/gpio-agent/pkg/file"
)

// LoadTLSConfig builds a server TLS config from a certificate and key file.
// Both PEM and raw DER encodings are accepted.
func LoadTLSConfig(certFile, keyFile string, fileClient file.FileOperations) (*tls.Config, error) {
	certData, err := fileClient.ReadFileRaw(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	keyData, err := fileClient.ReadFileRaw(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	cert, err := parseKeyPair(certData, keyData)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func parseKeyPair(certData, keyData []byte) (tls.Certificate, error) {
	if block, _ := pem.Decode(certData); block != nil {
		cert, err := tls.X509KeyPair(certData, keyData)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load PEM key pair: %w", err)
		}
		return cert, nil
	}

	leaf, err := x509.ParseCertificate(certData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse DER certificate: %w", err)
	}
	key, err := parsePrivateKey(keyData)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{certData},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("failed to parse DER private key: not PKCS#8, EC or PKCS#1")
}
