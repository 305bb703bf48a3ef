package configgen

import "github.com/skycoin/skycoin/src/util/logging"

var log = logging.MustGetLogger("configgen")
