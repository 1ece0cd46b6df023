//go:build !release

package vkdevice

const validationDefaultEnabled = true
