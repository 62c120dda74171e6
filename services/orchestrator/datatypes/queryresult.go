// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// QueryType classifies what a captured query was for.
type QueryType string

const (
	QueryTypeSelect      QueryType = "select"
	QueryTypeExportExcel QueryType = "export_excel"
	QueryTypeExportCSV   QueryType = "export_csv"
	QueryTypeExportPDF   QueryType = "export_pdf"
)

// QueryResult is a value object recording one executed (or captured) query.
// It is copied on every read and never mutated after construction.
type QueryResult struct {
	Query      string    `json:"query"`
	ResultData string    `json:"result_data"`
	Timestamp  time.Time `json:"timestamp"`
	RowCount   int       `json:"row_count"`
	Columns    []string  `json:"columns"`
	QueryType  QueryType `json:"query_type"`
}

// NewQueryResult stamps a result with the current time.
func NewQueryResult(query, resultData string, rowCount int, columns []string, queryType QueryType) QueryResult {
	return QueryResult{
		Query:      query,
		ResultData: resultData,
		Timestamp:  time.Now(),
		RowCount:   rowCount,
		Columns:    columns,
		QueryType:  queryType,
	}
}
