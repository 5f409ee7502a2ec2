// Package localserver serves the HTTP API on a Unix domain socket.
//
// The socket gives operators on the host access to the admin routes
// without opening them on the network. Access is controlled by the
// socket file permissions (0600 by default), and the network ACL admits
// every request that arrives over it.
//
// The CLI reaches it with a unix:// server address:
//
//	autosave-cli --server unix:///run/autosave-server/admin.sock admin gc
package localserver
