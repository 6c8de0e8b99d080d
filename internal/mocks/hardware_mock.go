package mocks

import (
	"context"
	"time"

	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/stretchr/testify/mock"
)

// MockHardware is a mock implementation of the hal.Hardware interface
type MockHardware struct {
	mock.Mock
}

func (m *MockHardware) LEDOn() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockHardware) LEDOff() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockHardware) Configure(pin int, mode hal.Mode) error {
	args := m.Called(pin, mode)
	return args.Error(0)
}

func (m *MockHardware) Write(pin, value int) error {
	args := m.Called(pin, value)
	return args.Error(0)
}

func (m *MockHardware) Read(pin int) (int, error) {
	args := m.Called(pin)
	return args.Int(0), args.Error(1)
}

func (m *MockHardware) DeviceInfo(ctx context.Context) (map[string]any, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(map[string]any)
	return info, args.Error(1)
}

func (m *MockHardware) Sleep(ctx context.Context, d time.Duration, deep bool) error {
	args := m.Called(ctx, d, deep)
	return args.Error(0)
}

func (m *MockHardware) Reset(soft bool) error {
	args := m.Called(soft)
	return args.Error(0)
}
