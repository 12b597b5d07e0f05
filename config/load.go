package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load 从文件加载配置
//
// 按扩展名选择格式：.toml 使用 TOML，其余按 JSON 解析。
// 文件覆盖在 Default() 之上，未知字段报错，结果经过 Validate。
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var s *Settings
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		s, err = FromTOML(data)
	} else {
		s, err = FromJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromJSON 解析 JSON 配置
func FromJSON(data []byte) (*Settings, error) {
	s := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, err
	}
	return s, nil
}

// FromTOML 解析 TOML 配置
func FromTOML(data []byte) (*Settings, error) {
	s := Default()
	md, err := toml.Decode(string(data), s)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return s, nil
}

// ToJSON 序列化为 JSON
func (s *Settings) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
