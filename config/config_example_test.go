// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"strings"
	"time"
)

func ExampleRead() {
	type sinkConfig struct {
		FlushInterval time.Duration `config:"flush_interval"`
	}

	r := strings.NewReader(`
flush_interval: 250ms
`)

	m, err := Read(FromYaml(r))
	if err != nil {
		fmt.Println(err)
		return
	}

	var cfg sinkConfig
	err = m.Unmarshal(&cfg)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(cfg.FlushInterval)
	// Output: 250ms
}
