package altlog

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Log format: line-oriented text.
//
// - Blank lines and lines starting with '#' are ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<pressure_pa>,<temperature_centi_c>,<altitude_cm>
//   where t_ns is nanoseconds since START.

type Record struct {
	// Start marks a START line; the sample fields are unset.
	Start bool
	At    time.Duration

	Pressure    int32
	Temperature int32
	Altitude    int32
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			return nil, errors.Errorf("altlog: line %d: want 4 fields, got %d: %q", lineNo, len(fields), line)
		}
		var vals [4]int64
		for i, f := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "altlog: line %d field %d", lineNo, i+1)
			}
			vals[i] = v
		}
		if vals[0] < 0 {
			return nil, errors.Errorf("altlog: line %d: negative timestamp %d", lineNo, vals[0])
		}
		recs = append(recs, Record{
			At:          time.Duration(vals[0]),
			Pressure:    int32(vals[1]),
			Temperature: int32(vals[2]),
			Altitude:    int32(vals[3]),
		})
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "altlog: scan")
	}
	return recs, nil
}

// Load reads every record in the file at path.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "altlog: open %s", path)
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "altlog: create %s", path)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "altlog: write header")
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

func (ww *Writer) Write(now time.Time, pressure, temperature, altitude int32) error {
	if ww.closed {
		return errors.New("altlog: writer is closed")
	}
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := ww.w.WriteString(strconv.FormatInt(d.Nanoseconds(), 10) + "," +
		strconv.FormatInt(int64(pressure), 10) + "," +
		strconv.FormatInt(int64(temperature), 10) + "," +
		strconv.FormatInt(int64(altitude), 10) + "\n")
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}
