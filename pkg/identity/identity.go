package identity

import (
	"os"

	"github.com/benmeehan/gpio-agent/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the device's unique identifier and other metadata.
type Identity struct {
	ID   string `json:"device_id,omitempty"`
	Name string `json:"device_name,omitempty"`
}

// DeviceInfoInterface defines methods for managing device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	EnsureDeviceID() (string, error)
	SaveDeviceID(deviceID string) error
	GetDeviceID() string
	GetDeviceName() string
}

// DeviceInfo manages the device identity and its associated file operations.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) *DeviceInfo {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
	}
}

// LoadDeviceInfo reads the device information from the file and populates the Identity field.
// A missing file leaves the identity empty.
func (d *DeviceInfo) LoadDeviceInfo() error {
	err := d.fileOps.ReadJsonFile(d.DeviceInfoFile, &d.Identity)
	if err != nil {
		if os.IsNotExist(err) {
			d.Identity = Identity{}
			return nil
		}
		return err
	}

	return nil
}

// EnsureDeviceID returns the device ID, generating and persisting a new one
// when the identity file has none.
func (d *DeviceInfo) EnsureDeviceID() (string, error) {
	if d.Identity.ID != "" {
		return d.Identity.ID, nil
	}
	id := uuid.NewString()
	if err := d.SaveDeviceID(id); err != nil {
		return "", err
	}
	return id, nil
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.Identity.ID
}

// GetDeviceName returns the configured device name, falling back to the hostname.
func (d *DeviceInfo) GetDeviceName() string {
	if d.Identity.Name != "" {
		return d.Identity.Name
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

// SaveDeviceID updates the device ID in the Identity field and writes it back to the file.
func (d *DeviceInfo) SaveDeviceID(deviceID string) error {
	d.Identity.ID = deviceID
	return d.fileOps.WriteJsonFile(d.DeviceInfoFile, d.Identity)
}
