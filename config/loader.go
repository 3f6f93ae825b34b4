package config

// Loader reads configuration into a target struct and reports changes
type Loader interface {
	Load(target any) error
	// Watch invokes callback after the underlying source changes
	Watch(callback func()) error
}
