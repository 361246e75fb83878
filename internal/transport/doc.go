// Package transport binds the five Jupyter channels and moves frames
// between them and the kernel.
//
// # Channels
//
//   - Heartbeat: REP socket that echoes every frame back unmodified. It is
//     bound and serving as soon as the SocketSet exists, before the kernel
//     has wired anything else.
//   - IOPub: PUB socket for status, output and comm broadcasts.
//   - Stdin: ROUTER socket, bound but inactive. Inbound traffic is logged
//     and discarded.
//   - Shell and Control: ROUTER sockets carrying requests. Every decoded
//     message is handed to the registered Listener.
//
// All sockets share the kernel identity so the frontend sees one peer.
//
// # Lifecycle
//
//	set, err := transport.New(ctx, conn, identity, transport.ZMQFactory)
//	...
//	err = set.Start(func(msg *wire.Message) { ... })
//	...
//	set.Detach()   // stop delivering, inbound traffic is dropped
//	set.Close()    // close every socket, receive loops exit
//	err = set.Wait()
package transport
