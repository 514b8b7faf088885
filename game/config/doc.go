// Package config provides city configuration management for the Mini Metro simulation server.
//
// The config package handles:
//   - Loading city maps from JSON files
//   - Validation through the engine's city rules
//   - Default city management
//   - City discovery and listing
//
// Configuration Format:
//
// Cities are stored as JSON files in the configs directory; the file name is
// the city id used for session creation. Each city defines:
//   - Rivers as polylines with a pixel width, in normalized coordinates
//   - Islands (land overrides water) and bays
//   - Weighted spawn zones where new stations appear
//   - Landmarks, only used by renderers
//   - Initial and weekly bridge grants
//
// Available Cities:
//
//   - london: the Thames, 3 bridges and 1 per week
//   - paris: the Seine with its islands
//   - newyork: Hudson and East River, 4 bridges
//   - berlin: the Spree, 2 bridges and half a bridge per week
//   - osaka: a bay along the western edge
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	paris, err := manager.LoadConfig("paris")
//	defaultCity := manager.GetDefault() // london when present
//	cities, err := manager.ListConfigs()
package config
