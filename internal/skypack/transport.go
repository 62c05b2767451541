package skypack

import "net"

// PacketConn is the part of net.PacketConn the client uses. Only the
// receiver goroutine calls ReadFrom; WriteTo is called concurrently by every
// in-flight request. *net.UDPConn satisfies it.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
	LocalAddr() net.Addr
}
