// Package config loads friendsync configuration.
//
// A YAML file is first checked against an embedded CUE schema (schema.cue),
// whose #Config definition is closed: unknown keys, bad enums and
// out-of-range values are rejected with CUE's positioned errors. The same
// YAML is then decoded onto Default(), so every key is optional.
//
//	store:
//	  backend: sqlite        # sqlite | bolt
//	  path: friendsync.db
//	txn:
//	  max_attempts: 5        # 0 retries conflicts forever
//	  backoff: 10ms
//	dispatch:
//	  workers: 4
//	  batch_size: 64
//	  poll_interval: 200ms
//	  max_delivery_attempts: 10
//	mqtt:
//	  mode: off              # off | publish | subscribe
//	  broker: tcp://localhost:1883
//	  client_id: friendsync
//	  topic_prefix: friendsync/changes
//	metrics:
//	  listen: ":9464"        # empty disables the endpoint
//	log:
//	  level: info            # debug | info | warn | error
//	  format: text           # text | json
package config
