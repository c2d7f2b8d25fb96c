package wrshare

// Thin wrappers around the sonic JSON codec so the rest of the package
// never touches a codec implementation directly.

import (
	"github.com/bytedance/sonic"
)

var jsonCfg = sonic.ConfigStd

func jsonMarshal(v any) ([]byte, error) {
	return jsonCfg.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	return jsonCfg.Unmarshal(data, v)
}

func jsonValid(data []byte) bool {
	return jsonCfg.Valid(data)
}
