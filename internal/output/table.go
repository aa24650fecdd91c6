package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/lookup"
	"github.com/acessivel/mobility/internal/quota"
	"github.com/acessivel/mobility/pkg/types"
)

// TableFormatter renders known values as aligned, optionally colored
// tables. Anything else is written as YAML.
type TableFormatter struct {
	noColor bool
	width   int
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(config Config) *TableFormatter {
	width := config.Width
	if width == 0 {
		width = terminalWidth()
	}
	return &TableFormatter{noColor: config.NoColor, width: width}
}

func (t *TableFormatter) Format(w io.Writer, v any) error {
	switch val := v.(type) {
	case *types.AddressData:
		if val == nil {
			return t.empty(w, "No address found")
		}
		return t.addresses(w, []types.AddressData{*val})
	case types.AddressData:
		return t.addresses(w, []types.AddressData{val})
	case []types.AddressData:
		return t.addresses(w, val)
	case *types.LocationData:
		if val == nil {
			return t.empty(w, "No location found")
		}
		return t.locations(w, []types.LocationData{*val})
	case []types.LocationData:
		return t.locations(w, val)
	case map[string]cache.Stats:
		return t.cacheStats(w, val)
	case quota.Usage:
		return t.quota(w, val)
	case *quota.Usage:
		return t.quota(w, *val)
	case lookup.Stats:
		return t.lookupStats(w, val)
	case []map[string]any:
		return t.records(w, val)
	default:
		return (&YAMLFormatter{}).Format(w, v)
	}
}

func (t *TableFormatter) addresses(w io.Writer, addrs []types.AddressData) error {
	if len(addrs) == 0 {
		return t.empty(w, "No addresses found")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, t.header("CEP\tStreet\tNeighborhood\tCity\tState"))
	for _, a := range addrs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ZipCode, t.truncate(a.Street, 40), t.truncate(a.Neighborhood, 25), a.City, a.State)
	}
	return tw.Flush()
}

func (t *TableFormatter) locations(w io.Writer, locs []types.LocationData) error {
	if len(locs) == 0 {
		return t.empty(w, "No locations found")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, t.header("Name\tLatitude\tLongitude\tType\tImportance"))
	for _, l := range locs {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%s\t%.2f\n",
			t.truncate(l.DisplayName, t.width/2), l.Latitude, l.Longitude, l.Type, l.Importance)
	}
	return tw.Flush()
}

func (t *TableFormatter) cacheStats(w io.Writer, stats map[string]cache.Stats) error {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, t.header("Cache\tSize\tMax\tExpired\tAccesses\tAvg Age\tMemory"))
	for _, name := range names {
		s := stats[name]
		expired := fmt.Sprintf("%d", s.Expired)
		if s.Expired > 0 {
			expired = t.colorize(expired, color.FgYellow)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
			name, s.Size, s.MaxSize, expired, s.TotalAccessCount, s.AverageAge.Round(1e9), s.MemoryUsageHuman)
	}
	return tw.Flush()
}

func (t *TableFormatter) quota(w io.Writer, u quota.Usage) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, t.header("Operation\tCount\tUsed"))
	fmt.Fprintf(tw, "reads\t%d\t%s\n", u.Reads, t.percent(u.ReadPercentage))
	fmt.Fprintf(tw, "writes\t%d\t%s\n", u.Writes, t.percent(u.WritePercentage))
	fmt.Fprintf(tw, "deletes\t%d\t%s\n", u.Deletes, t.percent(u.DeletePercentage))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nWindow started %s\n", u.LastReset.Format("2006-01-02 15:04:05"))
	if u.IsNearLimit {
		fmt.Fprintln(w, t.colorize("Near the daily limit: reduce backend reads and writes", color.FgYellow, color.Bold))
	}
	return nil
}

func (t *TableFormatter) lookupStats(w io.Writer, s lookup.Stats) error {
	fmt.Fprintf(w, "%s %d\n", t.colorize("Cached entries:", color.Bold), s.Size)
	for _, key := range s.Entries {
		fmt.Fprintf(w, "  %s\n", t.truncate(key, t.width-2))
	}
	return nil
}

func (t *TableFormatter) records(w io.Writer, records []map[string]any) error {
	if len(records) == 0 {
		return t.empty(w, "No documents found")
	}

	fieldSet := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			if k != "id" {
				fieldSet[k] = struct{}{}
			}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	fields = append([]string{"id"}, fields...)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, t.header(strings.Join(fields, "\t")))
	for _, r := range records {
		cells := make([]string, len(fields))
		for i, f := range fields {
			if v, ok := r[f]; ok && v != nil {
				cells[i] = t.truncate(fmt.Sprintf("%v", v), 30)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func (t *TableFormatter) percent(p float64) string {
	s := fmt.Sprintf("%.1f%%", p)
	switch {
	case p >= 90:
		return t.colorize(s, color.FgRed, color.Bold)
	case p >= 75:
		return t.colorize(s, color.FgYellow)
	default:
		return t.colorize(s, color.FgGreen)
	}
}

func (t *TableFormatter) empty(w io.Writer, msg string) error {
	_, err := fmt.Fprintln(w, t.colorize(msg, color.FgYellow))
	return err
}

func (t *TableFormatter) header(s string) string {
	return t.colorize(s, color.FgCyan, color.Bold)
}

func (t *TableFormatter) colorize(text string, attrs ...color.Attribute) string {
	if t.noColor {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

func (t *TableFormatter) truncate(s string, max int) string {
	if max <= 3 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
