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

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeMetadata PluginType = 1
	PluginTypeBlob     PluginType = 2
)

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeMetadata:
		return "metadata"
	case PluginTypeBlob:
		return "blob"
	default:
		return ""
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = 1
	PluginOptionTypeBool   PluginOptionType = 2
	PluginOptionTypeInt    PluginOptionType = 3
	PluginOptionTypeUint   PluginOptionType = 4
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	Type         PluginOptionType
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var pluginEntries []PluginEntry

// Register adds a plugin entry. It is called from plugin package init functions.
func Register(pluginEntry PluginEntry) {
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered entries of the given type
func GetPlugins(pluginType PluginType) []PluginEntry {
	var ret []PluginEntry
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin builds a new plugin instance from the current option values
func GetPlugin(pluginType PluginType, pluginName string) Plugin {
	p := findEntry(pluginType, pluginName)
	if p == nil || p.NewFromOptionsFunc == nil {
		return nil
	}
	return p.NewFromOptionsFunc()
}

func findEntry(pluginType PluginType, pluginName string) *PluginEntry {
	for i := range pluginEntries {
		if pluginEntries[i].Type == pluginType &&
			pluginEntries[i].Name == pluginName {
			return &pluginEntries[i]
		}
	}
	return nil
}

func optionKey(p PluginEntry, opt PluginOption) string {
	return fmt.Sprintf("%s-%s-%s", PluginTypeName(p.Type), p.Name, opt.Name)
}

// PopulateCmdlineOptions adds a flag for every plugin option, named
// <type>-<plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			name := optionKey(p, opt)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				def, _ := opt.DefaultValue.(string)
				if !ok {
					return fmt.Errorf("option %s: destination is not *string", name)
				}
				fs.StringVar(dest, name, def, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				def, _ := opt.DefaultValue.(bool)
				if !ok {
					return fmt.Errorf("option %s: destination is not *bool", name)
				}
				fs.BoolVar(dest, name, def, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				def, _ := opt.DefaultValue.(int)
				if !ok {
					return fmt.Errorf("option %s: destination is not *int", name)
				}
				fs.IntVar(dest, name, def, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				def, _ := opt.DefaultValue.(uint64)
				if !ok {
					return fmt.Errorf("option %s: destination is not *uint64", name)
				}
				fs.Uint64Var(dest, name, def, opt.Description)
			default:
				return fmt.Errorf("option %s: unknown option type", name)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies WILHELMINA_<TYPE>_<PLUGIN>_<OPTION> environment
// variables to plugin options
func ProcessEnvVars() error {
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			envName := "WILHELMINA_" + strings.ToUpper(
				strings.ReplaceAll(optionKey(p, opt), "-", "_"),
			)
			val, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			if err := opt.assignString(val); err != nil {
				return fmt.Errorf("%s: %w", envName, err)
			}
		}
	}
	return nil
}

// ProcessConfig applies values from the config file. The map is keyed by
// plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]any) error {
	for _, p := range pluginEntries {
		typeConfig, ok := pluginConfig[PluginTypeName(p.Type)]
		if !ok {
			continue
		}
		rawPluginConfig, ok := typeConfig[p.Name]
		if !ok {
			continue
		}
		optionValues, ok := rawPluginConfig.(map[string]any)
		if !ok {
			return fmt.Errorf(
				"%s plugin '%s': config is not a map",
				PluginTypeName(p.Type),
				p.Name,
			)
		}
		for _, opt := range p.Options {
			val, ok := optionValues[opt.Name]
			if !ok {
				continue
			}
			if err := opt.assignString(fmt.Sprint(val)); err != nil {
				return fmt.Errorf("%s: %w", optionKey(p, opt), err)
			}
		}
	}
	return nil
}

func (o PluginOption) assignString(val string) error {
	switch o.Type {
	case PluginOptionTypeString:
		return o.assign(val)
	case PluginOptionTypeBool:
		v, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		return o.assign(v)
	case PluginOptionTypeInt:
		v, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		return o.assign(v)
	case PluginOptionTypeUint:
		v, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return err
		}
		return o.assign(v)
	default:
		return fmt.Errorf("unknown option type for option %s", o.Name)
	}
}
