package external

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
)

const (
	sltSeparator  = "----------"
	sltTimeLayout = "2006-01-02 15:04:05"
	cabTimeLayout = "02.01.2006 15:04:05"
)

// parseSlt reads the technical listing printed by "7z l -slt". Records follow
// the separator line as blocks of "Key = Value" lines split by blank lines.
func parseSlt(out []byte) []engine.Entry {
	var entries []engine.Entry
	started := false
	record := map[string]string{}

	flush := func() {
		if e, ok := sltEntry(record); ok {
			entries = append(entries, e)
		}
		record = map[string]string{}
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !started {
			started = line == sltSeparator
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, " = ")
		if !ok {
			key, value, _ = strings.Cut(line, " =")
		}
		record[strings.TrimSpace(key)] = value
	}
	flush()
	return entries
}

func sltEntry(r map[string]string) (engine.Entry, bool) {
	p, ok := r["Path"]
	if !ok || p == "" {
		return engine.Entry{}, false
	}
	if r["Folder"] == "+" || strings.HasPrefix(r["Attributes"], "D") {
		return engine.Entry{}, false
	}

	e := engine.Entry{Path: p}
	e.UncompressedSize, _ = strconv.ParseInt(r["Size"], 10, 64)
	e.CompressedSize, _ = strconv.ParseInt(r["Packed Size"], 10, 64)
	if m := r["Method"]; m != "" {
		e.IsCompressed = !strings.EqualFold(m, "Copy") && !strings.EqualFold(m, "Store")
	}
	if t, err := time.ParseInLocation(sltTimeLayout, r["Modified"], time.Local); err == nil {
		e.ModTime = t
	}
	if crc, err := strconv.ParseUint(r["CRC"], 16, 32); err == nil {
		v := uint32(crc)
		e.CRC32 = &v
	}
	if c := r["Comment"]; c != "" {
		e.Comment = &c
	}
	return e, true
}

// parseCabList reads the table printed by "cabextract -l":
//
//	 File size | Date       Time     | Name
//	-----------+---------------------+-------------
//	        12 | 20.01.2024 10:11:12 | a.txt
func parseCabList(out []byte) []engine.Entry {
	var entries []engine.Entry
	started := false

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !started {
			started = strings.HasPrefix(line, "-----------+")
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		size, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			continue
		}
		e := engine.Entry{
			Path:             strings.TrimSpace(parts[2]),
			UncompressedSize: size,
			IsCompressed:     true,
		}
		if t, err := time.ParseInLocation(cabTimeLayout, strings.TrimSpace(parts[1]), time.Local); err == nil {
			e.ModTime = t
		}
		entries = append(entries, e)
	}
	return entries
}
