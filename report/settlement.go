// Package report exports settlement runs for off-chain reconciliation.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"ddbox/native/blindbox"
)

// Files lists the report artefacts written for one settlement run.
type Files struct {
	CSVPath     string
	ParquetPath string
	Rows        int
}

// Row is one voter line of a settlement report.
type Row struct {
	RunID     string
	Height    uint64
	Denom     string
	Address   string
	Tier      blindbox.Tier
	Principal string
	Payout    string
	Settled   bool
	Draws     [3]string
}

// Rows flattens a settlement into report rows in settlement order.
func Rows(s *blindbox.Settlement) []Row {
	if s == nil {
		return nil
	}
	rows := make([]Row, 0, len(s.Outcomes))
	for _, outcome := range s.Outcomes {
		row := Row{
			RunID:   s.RunID,
			Height:  s.Height,
			Denom:   s.Denom,
			Address: outcome.Address,
			Tier:    outcome.Tier,
			Settled: outcome.Settled,
			Draws:   [3]string{outcome.DrawHex(0), outcome.DrawHex(1), outcome.DrawHex(2)},
		}
		row.Principal = "0"
		if outcome.Principal != nil {
			row.Principal = outcome.Principal.Dec()
		}
		row.Payout = "0"
		if outcome.Payout != nil {
			row.Payout = outcome.Payout.Dec()
		}
		rows = append(rows, row)
	}
	return rows
}

// Write stores CSV and Parquet renditions of s under dir. Runs without
// voters produce no files.
func Write(dir string, s *blindbox.Settlement) (*Files, error) {
	rows := Rows(s)
	if len(rows) == 0 {
		return &Files{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create dir: %w", err)
	}
	name := fmt.Sprintf("settlement_%d_%s", s.Height, shortRunID(s.RunID))
	csvPath := filepath.Join(dir, name+".csv")
	if err := writeCSV(csvPath, rows); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(dir, name+".parquet")
	if err := writeParquet(parquetPath, rows); err != nil {
		return nil, err
	}
	return &Files{CSVPath: csvPath, ParquetPath: parquetPath, Rows: len(rows)}, nil
}

func shortRunID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}

var csvHeader = []string{
	"run_id", "height", "denom", "address", "tier", "principal", "payout", "settled",
	"draw_0", "draw_1", "draw_2",
}

func writeCSV(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.RunID,
			strconv.FormatUint(row.Height, 10),
			row.Denom,
			row.Address,
			strconv.Itoa(int(row.Tier)),
			row.Principal,
			row.Payout,
			strconv.FormatBool(row.Settled),
			row.Draws[0],
			row.Draws[1],
			row.Draws[2],
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	RunID     string `parquet:"name=run_id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Height    int64  `parquet:"name=height, type=INT64"`
	Denom     string `parquet:"name=denom, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Address   string `parquet:"name=address, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Tier      int32  `parquet:"name=tier, type=INT32"`
	Principal string `parquet:"name=principal, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Payout    string `parquet:"name=payout, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Settled   bool   `parquet:"name=settled, type=BOOLEAN"`
	Draw0     string `parquet:"name=draw_0, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Draw1     string `parquet:"name=draw_1, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Draw2     string `parquet:"name=draw_2, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

func writeParquet(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("report: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			RunID:     row.RunID,
			Height:    int64(row.Height),
			Denom:     row.Denom,
			Address:   row.Address,
			Tier:      int32(row.Tier),
			Principal: row.Principal,
			Payout:    row.Payout,
			Settled:   row.Settled,
			Draw0:     row.Draws[0],
			Draw1:     row.Draws[1],
			Draw2:     row.Draws[2],
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("report: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("report: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("report: close parquet file: %w", err)
	}
	return nil
}
