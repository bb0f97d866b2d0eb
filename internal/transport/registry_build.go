package transport

// BuildRegistry assembles the single process-wide TypeRegistry from every
// category's registrations. Called once at startup (see infra/server/grpc
// module wiring) and the result handed out as an immutable *TypeRegistry.
func BuildRegistry() *TypeRegistry {
	b := NewRegistryBuilder()
	RegisterInternalTypes(b)
	RegisterConfigTypes(b)
	RegisterNamingTypes(b)
	return b.Build()
}
