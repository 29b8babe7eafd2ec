package frontend

type NetBackend interface {
	NetVersion() string
}

type NetFrontend struct {
	b NetBackend
}

func NewNetFrontend(b NetBackend) *NetFrontend {
	return &NetFrontend{b: b}
}

// Version returns the chain ID as a decimal string.
func (f *NetFrontend) Version() string {
	return f.b.NetVersion()
}
