package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/gpio-agent/internal/mocks"
	"github.com/stretchr/testify/assert"
)

func TestInitialize_CACertificateReadError(t *testing.T) {
	mockFile := new(mocks.MockFileOperations)
	mockFile.On("ReadFileRaw", "ca.crt").Return(nil, errors.New("permission denied"))

	svc := NewMqttService(mockFile)
	err := svc.Initialize("ssl://localhost:8883", "gpio-agent-test", "ca.crt", time.Second)

	assert.ErrorContains(t, err, "failed to read CA certificate")
	assert.ErrorContains(t, err, "permission denied")
	mockFile.AssertExpectations(t)
}

func TestInitialize_InvalidCACertificate(t *testing.T) {
	mockFile := new(mocks.MockFileOperations)
	mockFile.On("ReadFileRaw", "ca.crt").Return([]byte("not a certificate"), nil)

	svc := NewMqttService(mockFile)
	err := svc.Initialize("ssl://localhost:8883", "gpio-agent-test", "ca.crt", time.Second)

	assert.EqualError(t, err, "failed to append CA certificate")
}

func TestMqttService_Delegates(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	token := mocks.NewCompletedToken(nil)
	client.On("Connect").Return(token)
	client.On("Publish", "t", byte(1), false, []byte("x")).Return(token)
	client.On("Disconnect", uint(250)).Return()

	svc := &MqttService{client: client}
	assert.NoError(t, svc.Connect().Error())
	assert.NoError(t, svc.Publish("t", 1, false, []byte("x")).Error())
	svc.Disconnect(250)

	client.AssertExpectations(t)
}
