// Package all registers every built-in output plugin. Import it for
// side effects from the main package.
package all

import (
	_ "sfs/forecast-engine/pkg/output/console"
	_ "sfs/forecast-engine/pkg/output/influxdb"
	_ "sfs/forecast-engine/pkg/output/json"
	_ "sfs/forecast-engine/pkg/output/webhook"
)
