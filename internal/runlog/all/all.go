// Package all enables every built-in run log backend. Import it for side
// effects from the binary's wiring code:
//
//	import _ "csvfilter/internal/runlog/all"
package all

import (
	_ "csvfilter/internal/runlog/mssql"
	_ "csvfilter/internal/runlog/mysql"
	_ "csvfilter/internal/runlog/postgres"
	_ "csvfilter/internal/runlog/sqlite"
)
