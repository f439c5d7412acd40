//go:build !onnx

package config

const onnxBuilt = false
