// Package entity publishes Synced Select proxy entities to Home Assistant
// through MQTT discovery.
//
// Every loaded entry appears as one select entity on its own device:
//
//	<discovery>/select/synced_select/<object id>/config   retained discovery config
//	<prefix>/<entry id>/state                              option or "None"
//	<prefix>/<entry id>/set                                selections from Home Assistant
//	<prefix>/status                                        availability (LWT)
//
// A changed option list republishes the config. Deleting an entry publishes
// an empty retained config, which removes the entity. When Home Assistant
// restarts it publishes "online" on <discovery>/status and every entity is
// announced again.
package entity
