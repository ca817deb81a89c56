// Package config manages the ssdp-scan configuration file.
//
// Settings are stored as YAML and hold the defaults for the search message,
// the listen timeout and interfaces, and the log level. Command-line flags
// override them. Discovered devices are never written to disk.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/ssdpscan/config.yaml or $HOME/.config/ssdpscan/config.yaml
//   - macOS: $HOME/.config/ssdpscan/config.yaml
//   - Windows: %LOCALAPPDATA%\ssdpscan\config.yaml
//
// # Usage Example
//
//	settings, err := config.LoadDefault()
//	if err != nil {
//	    return err
//	}
//
//	settings.Search.Target = "upnp:rootdevice"
//
//	path, _ := config.DefaultPath()
//	if err := settings.Save(path); err != nil {
//	    return err
//	}
package config
