// Package config loads the settings of a fecjitter sender or receiver.
//
// Configuration is layered: Default values, then an optional YAML file, then
// environment variables.
//
//	cfg, err := config.Load("fecjitter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Environment variables
//
//   - FECJITTER_LOOKBACK_WINDOW: frames retired together by each clear (1-128)
//   - FECJITTER_DATA_SHARDS: shares needed to decode a frame (k)
//   - FECJITTER_TOTAL_SHARDS: shares sent per frame (n, at most 256)
//   - FECJITTER_SHARD_SIZE: bytes per share
//   - FECJITTER_POLL_INTERVAL_MS: receiver backoff after an empty poll
//   - FECJITTER_SOURCE_SWITCH_THRESHOLD: foreign-SSRC packets in a row before
//     the receiver follows a restarted sender (0 = never)
//   - FECJITTER_PACKET_INTERVAL_US: sender pacing between fragments
//   - FECJITTER_LISTEN_ADDR: UDP listen address
//   - FECJITTER_REMOTE_ADDR: receiver address a sender sends to
//
// A variable that fails to parse or is out of bounds is logged and ignored;
// the previous value stays in effect.
//
// # File format
//
//	buffer:
//	  lookback_window: 20
//	fec:
//	  data_shards: 100
//	  total_shards: 110
//	  share_size: 1300
//	network:
//	  listen_addr: ":9000"
//	  remote_addr: "127.0.0.1:9000"
//	  clock_rate: 90000
//	  packet_interval: 400us
//	receiver:
//	  poll_interval: 1ms
//	  source_switch_threshold: 16
//	loopback:
//	  loss_rate: 0.02
//	  duplicate_rate: 0
//	  reorder_rate: 0
//	  seed: 1
package config
