package workflow

// ComponentHealth summarizes the readiness of one workflow component.
type ComponentHealth struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready ComponentHealth record.
func Healthy(name string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: true}
}

// Unhealthy constructs a not-ready ComponentHealth record with context
// detail.
func Unhealthy(name, detail string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: false, Detail: detail}
}
