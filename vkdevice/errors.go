package vkdevice

import "github.com/pkg/errors"

// ErrDeviceNotReady is returned by operations invoked while the device is not in the Ready state
var ErrDeviceNotReady error = errors.New("device is not ready")

// ErrDeviceLost marks errors caused by a driver failure during submission or fence queries. Once a
// device has lost its connection to the driver, every later factory call and submission fails with it.
var ErrDeviceLost error = errors.New("device lost")

// ErrInitialization marks every error returned from New
var ErrInitialization error = errors.New("device initialization failed")
