package bus

import "github.com/wailbentafat/showbus/logging"

// Package-level logger for the bus. Entries derived from it carry the
// node id of the bus instance that produced them.
var log = logging.For("bus")
