//go:build onnx

package config

const onnxBuilt = true
