// Package providers imports all DNS provider packages to trigger their init() registration.
package providers

import (
	_ "github.com/yuriy-kovalchuk/yk-zone-records/internal/dns/httpapi"
	_ "github.com/yuriy-kovalchuk/yk-zone-records/internal/dns/oci"
)
