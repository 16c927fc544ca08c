package config

import "reflect"

// ChangedSections names the top-level sections that differ between two
// configs. Values are safe to log; tokens never appear in the output.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
	}
	if !reflect.DeepEqual(oldCfg.Database, newCfg.Database) {
		changed = append(changed, "database")
	}
	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
	}
	if !reflect.DeepEqual(oldCfg.Bravia, newCfg.Bravia) {
		changed = append(changed, "bravia")
	}
	if !reflect.DeepEqual(oldCfg.Power, newCfg.Power) {
		changed = append(changed, "power")
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
	}
	if !reflect.DeepEqual(oldCfg.Energy, newCfg.Energy) {
		changed = append(changed, "energy")
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
	}
	return changed
}
