package domain

import "strconv"

// Endpoint identifies a ring participant by its network address and its
// identifier in the circular space. Two endpoints are equal iff all three
// components (IP, Port, NodeId) match.
type Endpoint struct {
	IP     string
	Port   int
	NodeId ID
}

// Equal reports whether two endpoints refer to the same participant.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.IP == o.IP && e.Port == o.Port && e.NodeId.Equal(o.NodeId)
}

// Addr returns the "ip:port" dial string for this endpoint.
func (e Endpoint) Addr() string {
	return e.IP + ":" + strconv.Itoa(e.Port)
}
