package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for client connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for client connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// CLIENT_CONN_WRITE_BUFFER_SIZE is the socket write buffer size for client connections
	CLIENT_CONN_WRITE_BUFFER_SIZE = 1024 * 1024
	// CLIENT_CONN_READ_BUFFER_SIZE is the socket read buffer size for client connections
	CLIENT_CONN_READ_BUFFER_SIZE = 1024 * 1024
	// CLIENT_CONN_SET_TCP_NO_DELAY = true sets client connections to TcpNoDelay
	CLIENT_CONN_SET_TCP_NO_DELAY = true

	// For Handshake
	// HANDSHAKE_TIMEOUT is the deadline for the public key exchange
	HANDSHAKE_TIMEOUT = time.Second * 10
	// MAX_HANDSHAKE_FRAME_SIZE bounds the clear public key frame
	MAX_HANDSHAKE_FRAME_SIZE = 256

	// For Compression Channel
	// COMPRESS_BLOCK_SIZE is the size of each half of the raw double buffer
	COMPRESS_BLOCK_SIZE = 8192
	// MAX_FRAME_SIZE bounds one encrypted frame on the wire
	MAX_FRAME_SIZE = 4 * COMPRESS_BLOCK_SIZE
	// MAX_MESSAGE_BODY_SIZE bounds one message envelope body
	MAX_MESSAGE_BODY_SIZE = 16 * 1024 * 1024

	// For Client Connections
	// CLIENT_SEND_QUEUE_WARN_LEN is the send queue length that triggers warnings
	CLIENT_SEND_QUEUE_WARN_LEN = 1000
	// CLIENT_SEND_QUEUE_MAX_LEN is the send queue length at which a slow client is disconnected
	CLIENT_SEND_QUEUE_MAX_LEN = 10000

	// For Worker Pool
	// ASYNC_JOB_QUEUE_MAXLEN is the max length of each worker's job queue
	ASYNC_JOB_QUEUE_MAXLEN = 10000

	// For Sectors
	// SECTOR_REAP_INTERVAL is how often idle sectors are checked
	SECTOR_REAP_INTERVAL = time.Second * 5
	// SECTOR_MAX_SPEED is the cruise speed of ships (units per second)
	SECTOR_MAX_SPEED = 100.0
	// SECTOR_DEFAULT_ORBIT_RADIUS is used when an orbit command has no distance
	SECTOR_DEFAULT_ORBIT_RADIUS = 500.0
	// SECTOR_DEFAULT_KEEP_DISTANCE is used when a keep-distance command has no distance
	SECTOR_DEFAULT_KEEP_DISTANCE = 1000.0
	// SECTOR_ARRIVE_DISTANCE is the distance at which approach stops
	SECTOR_ARRIVE_DISTANCE = 50.0

	// For Server
	// SERVER_STATUS_INTERVAL is the interval to log server status
	SERVER_STATUS_INTERVAL = time.Minute
	// HEARTBEAT_CHECK_INTERVAL is the interval to check idle connections
	HEARTBEAT_CHECK_INTERVAL = time.Second * 5

	// For Operation Monitor
	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output
	OPMON_DUMP_INTERVAL = 0
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_SECTORS prints sector operation debug logs
	DEBUG_SECTORS = false
	// DEBUG_CLIENTS prints clients operation debug logs
	DEBUG_CLIENTS = false
	// DEBUG_SAVE_LOAD prints save & load debug logs
	DEBUG_SAVE_LOAD = false
)
