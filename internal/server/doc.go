// Package server implements the network surfaces: the UDP listener that
// feeds client datagrams into sessions, the reply sender sharing the same
// socket, and the HTTP monitoring API.
package server
