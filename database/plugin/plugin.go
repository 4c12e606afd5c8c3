// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import "fmt"

type Plugin interface {
	Start() error
	Stop() error
}

// ErrorPlugin is a plugin that always returns an error on Start()
type ErrorPlugin struct {
	Err error
}

func (e *ErrorPlugin) Start() error {
	return e.Err
}

func (e *ErrorPlugin) Stop() error {
	return nil
}

// NewErrorPlugin creates a new error plugin that returns the given error on Start()
func NewErrorPlugin(err error) Plugin {
	return &ErrorPlugin{Err: err}
}

// StartPlugin gets a plugin from the registry and starts it
func StartPlugin(pluginType PluginType, pluginName string) (Plugin, error) {
	p := GetPlugin(pluginType, pluginName)
	if p == nil {
		return nil, fmt.Errorf(
			"%s plugin '%s' not found",
			PluginTypeName(pluginType),
			pluginName,
		)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	return p, nil
}

// SetPluginOption sets the value of a named option for a plugin entry. Callers
// use it to override plugin defaults (such as data-dir) before a plugin is
// started. Unknown option names are ignored. It must only be called during
// initialization, since option destinations are written without locking.
func SetPluginOption(
	pluginType PluginType,
	pluginName string,
	optionName string,
	value any,
) error {
	p := findEntry(pluginType, pluginName)
	if p == nil {
		return fmt.Errorf(
			"%s plugin '%s' not found",
			PluginTypeName(pluginType),
			pluginName,
		)
	}
	for _, opt := range p.Options {
		if opt.Name != optionName {
			continue
		}
		return opt.assign(value)
	}
	return nil
}

func (o PluginOption) assign(value any) error {
	switch o.Type {
	case PluginOptionTypeString:
		return assignTo[string](o, value)
	case PluginOptionTypeBool:
		return assignTo[bool](o, value)
	case PluginOptionTypeInt:
		return assignTo[int](o, value)
	case PluginOptionTypeUint:
		if v, ok := value.(int); ok {
			if v < 0 {
				return fmt.Errorf("invalid value for option %s: negative int", o.Name)
			}
			value = uint64(v)
		}
		return assignTo[uint64](o, value)
	default:
		return fmt.Errorf("unknown option type for option %s", o.Name)
	}
}

func assignTo[T any](o PluginOption, value any) error {
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf(
			"invalid type for option %s: expected %T",
			o.Name,
			*new(T),
		)
	}
	dest, ok := o.Dest.(*T)
	if !ok || dest == nil {
		return fmt.Errorf(
			"invalid destination for option %s: expected *%T",
			o.Name,
			*new(T),
		)
	}
	*dest = v
	return nil
}
