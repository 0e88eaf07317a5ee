package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
)

// Source export column names. Matching ignores case and surrounding whitespace, so "Agent Name " matches.
const (
	ColConversationID = "Conversation ID"
	ColSentBy         = "Sent By"
	ColText           = "TEXT"
	ColSkill          = "Skill"
	ColAgentName      = "Agent Name"
	ColSentAt         = "Message Sent Time"
	ColMessageType    = "Message Type"
)

// Artifact column names shared by the segment, unit, and retrieval CSVs.
const (
	ColUnit      = "Unit"
	ColLastSkill = "Last Skill"
	ColHandoffTo = "Handoff To"
	ColMessages  = "Messages"
	ColResults   = "Results"
	ColError     = "Error"
)

var transcriptColumns = []string{ColConversationID, ColSentBy, ColText, ColSkill, ColAgentName, ColSentAt, ColMessageType}

// ReadTranscriptCSV parses a raw message export. Rows with an unparseable timestamp are returned as rejected
// records rather than failing the read; rows missing a timestamp or conversation id are passed through with the
// zero value so Normalize reports them.
func ReadTranscriptCSV(r io.Reader) ([]Message, []RejectedRecord, error) {
	cr := newCSVReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ReadTranscriptCSV: read header: %w", err)
	}
	idx, err := columnIndex(header, transcriptColumns)
	if err != nil {
		return nil, nil, fmt.Errorf("ReadTranscriptCSV: %w", err)
	}

	var (
		msgs     []Message
		rejected []RejectedRecord
	)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("ReadTranscriptCSV: row %d: %w", row, err)
		}

		m := Message{
			ConversationID: strings.TrimSpace(field(rec, idx[ColConversationID])),
			Sender:         ParseRole(field(rec, idx[ColSentBy])),
			Text:           field(rec, idx[ColText]),
			Skill:          strings.TrimSpace(field(rec, idx[ColSkill])),
			AgentName:      strings.TrimSpace(field(rec, idx[ColAgentName])),
			MessageType:    strings.TrimSpace(field(rec, idx[ColMessageType])),
			Row:            row,
		}
		if raw := strings.TrimSpace(field(rec, idx[ColSentAt])); raw != "" {
			t, err := ParseSentAt(raw)
			if err != nil {
				rejected = append(rejected, RejectedRecord{
					Row:            row,
					ConversationID: m.ConversationID,
					Err:            NewError(ErrorMalformedRecord, "unparseable message sent time", err),
				})
				continue
			}
			m.SentAt = t
		}
		msgs = append(msgs, m)
	}
	return msgs, rejected, nil
}

// ReadTranscriptFile opens and parses a raw message export.
func ReadTranscriptFile(path string) ([]Message, []RejectedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ReadTranscriptFile: open: %w", err)
	}
	defer f.Close()
	return ReadTranscriptCSV(f)
}

var segmentColumns = []string{ColConversationID, ColLastSkill, ColAgentName, ColMessages}

// WriteSegmentsCSV writes segments in the persisted segment shape.
func WriteSegmentsCSV(w io.Writer, segments []Segment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(segmentColumns); err != nil {
		return err
	}
	for _, s := range segments {
		if err := cw.Write([]string{s.ConversationID, s.LastSkill, s.AgentIdentity, s.Text()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSegmentsCSV reads segments written by WriteSegmentsCSV. Line roles are not recoverable from the artifact,
// so the returned segments carry rendered text only.
func ReadSegmentsCSV(r io.Reader) ([]Segment, error) {
	rows, err := readArtifact(r, segmentColumns)
	if err != nil {
		return nil, fmt.Errorf("ReadSegmentsCSV: %w", err)
	}
	out := make([]Segment, 0, len(rows))
	for _, row := range rows {
		out = append(out, Segment{
			ConversationID: row[ColConversationID],
			LastSkill:      row[ColLastSkill],
			AgentIdentity:  row[ColAgentName],
			rendered:       splitMessages(row[ColMessages]),
		})
	}
	return out, nil
}

var unitColumns = []string{ColConversationID, ColUnit, ColLastSkill, ColAgentName, ColHandoffTo, ColMessages}

func unitRecord(u ReviewableUnit) []string {
	return []string{u.ConversationID, strconv.Itoa(u.UnitNumber), u.LastSkill, u.AgentIdentity, u.HandoffTo, u.Text()}
}

func unitFromRow(row map[string]string) (ReviewableUnit, error) {
	n, err := strconv.Atoi(strings.TrimSpace(row[ColUnit]))
	if err != nil {
		return ReviewableUnit{}, fmt.Errorf("conversation %s: bad unit number %q", row[ColConversationID], row[ColUnit])
	}
	return ReviewableUnit{
		ConversationID: row[ColConversationID],
		UnitNumber:     n,
		LastSkill:      row[ColLastSkill],
		AgentIdentity:  row[ColAgentName],
		HandoffTo:      row[ColHandoffTo],
		Messages:       splitMessages(row[ColMessages]),
	}, nil
}

// WriteUnitsCSV writes stitched reviewable units.
func WriteUnitsCSV(w io.Writer, units []ReviewableUnit) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(unitColumns); err != nil {
		return err
	}
	for _, u := range units {
		if err := cw.Write(unitRecord(u)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadUnitsCSV reads units written by WriteUnitsCSV.
func ReadUnitsCSV(r io.Reader) ([]ReviewableUnit, error) {
	rows, err := readArtifact(r, unitColumns)
	if err != nil {
		return nil, fmt.Errorf("ReadUnitsCSV: %w", err)
	}
	out := make([]ReviewableUnit, 0, len(rows))
	for _, row := range rows {
		u, err := unitFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("ReadUnitsCSV: %w", err)
		}
		out = append(out, u)
	}
	return out, nil
}

var retrievalColumns = append(append([]string(nil), unitColumns...), ColResults, ColError)

// WriteRetrievalCSV writes units with their retrieval answers or errors.
func WriteRetrievalCSV(w io.Writer, results []RetrievalResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(retrievalColumns); err != nil {
		return err
	}
	for _, r := range results {
		rec := append(unitRecord(r.Unit), r.Answer, r.Error)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRetrievalCSV reads results written by WriteRetrievalCSV.
func ReadRetrievalCSV(r io.Reader) ([]RetrievalResult, error) {
	rows, err := readArtifact(r, retrievalColumns)
	if err != nil {
		return nil, fmt.Errorf("ReadRetrievalCSV: %w", err)
	}
	out := make([]RetrievalResult, 0, len(rows))
	for _, row := range rows {
		u, err := unitFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("ReadRetrievalCSV: %w", err)
		}
		out = append(out, RetrievalResult{Unit: u, Answer: row[ColResults], Error: row[ColError]})
	}
	return out, nil
}

// WriteCSVFileAtomic renders a CSV artifact in memory and moves it into place atomically.
func WriteCSVFileAtomic(path string, overwrite bool, write func(io.Writer) error) error {
	if err := fileutils.CheckOverwrite(path, overwrite); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	if err := fileutils.WriteFileAtomicSameDir(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ReadCSVFile opens path and hands it to read.
func ReadCSVFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return read(f)
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func readArtifact(r io.Reader, required []string) ([]map[string]string, error) {
	cr := newCSVReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndex(header, required)
	if err != nil {
		return nil, err
	}

	var out []map[string]string
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		m := make(map[string]string, len(required))
		for _, col := range required {
			m[col] = field(rec, idx[col])
		}
		out = append(out, m)
	}
}

func columnIndex(header []string, required []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeColumn(h)
		if _, ok := byName[key]; !ok {
			byName[key] = i
		}
	}
	idx := make(map[string]int, len(required))
	var missing []string
	for _, col := range required {
		i, ok := byName[normalizeColumn(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		idx[col] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func normalizeColumn(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF")))
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func splitMessages(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
