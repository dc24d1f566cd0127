package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/yuriy-kovalchuk/yk-zone-records/internal/dns"
	"github.com/yuriy-kovalchuk/yk-zone-records/internal/zonerecords"
)

type failure struct {
	Failed bool   `json:"failed"`
	Msg    string `json:"msg"`
}

func writeResult(w io.Writer, result zonerecords.Result) error {
	if result.ZoneRecords == nil {
		result.ZoneRecords = []dns.Record{}
	}
	return json.NewEncoder(w).Encode(result)
}

func writeFailure(w io.Writer, err error) error {
	return json.NewEncoder(w).Encode(failure{Failed: true, Msg: failureMessage(err)})
}

// failureMessage reports service errors with the provider's own message and
// everything else with the full error chain.
func failureMessage(err error) string {
	var se *dns.ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
