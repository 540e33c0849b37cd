package cmd

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	generateCount  int
	generateOutput string
	generateSplit  float64
	generateSeed   int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate test email log data",
	Long:  `Generate a synthetic outbound email log CSV for benchmarking and testing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateCount <= 0 {
			return fmt.Errorf("count must be greater than 0")
		}

		if generateSplit < 0 || generateSplit > 1 {
			return fmt.Errorf("risky-ratio must be between 0 and 1")
		}

		generator := NewLogGenerator(generateSeed)

		riskyCount := int(float64(generateCount) * generateSplit)
		normalCount := generateCount - riskyCount

		fmt.Printf("🧪 Generating test email log...\n")
		fmt.Printf("📧 Total records: %d\n", generateCount)
		fmt.Printf("🚨 Risky records: %d (%.1f%%)\n", riskyCount, generateSplit*100)
		fmt.Printf("✅ Normal records: %d (%.1f%%)\n", normalCount, (1-generateSplit)*100)
		fmt.Printf("📂 Output file: %s\n\n", generateOutput)

		start := time.Now()

		file, err := os.Create(generateOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %v", err)
		}
		defer file.Close()

		writer := csv.NewWriter(file)
		defer writer.Flush()

		header := []string{
			"record_id", "sender", "recipients", "recipient_domain", "subject",
			"attachments", "justification", "department", "bunit",
			"account_type", "leaver", "prior_flags", "time",
		}
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %v", err)
		}

		rows := make([][]string, 0, generateCount)
		for i := 0; i < riskyCount; i++ {
			rows = append(rows, generator.RiskyRow())
		}
		for i := 0; i < normalCount; i++ {
			rows = append(rows, generator.NormalRow())
		}
		generator.rand.Shuffle(len(rows), func(i, j int) {
			rows[i], rows[j] = rows[j], rows[i]
		})

		for _, row := range rows {
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write record: %v", err)
			}
		}

		duration := time.Since(start)

		fmt.Printf("✅ Generation complete!\n")
		fmt.Printf("⏱️ Time taken: %v\n", duration)
		fmt.Printf("📈 Rate: %.0f records/second\n", float64(generateCount)/duration.Seconds())

		return nil
	},
}

// LogGenerator generates realistic outbound email log rows
type LogGenerator struct {
	rand *rand.Rand
	next int

	names          []string
	corpDomains    []string
	publicDomains  []string
	departments    []string
	riskyDepts     []string
	bunits         []string
	normalSubjects []string
	riskySubjects  []string
	normalFiles    []string
	riskyFiles     []string
	justifications []string
}

// NewLogGenerator creates a new log generator. A zero seed uses the
// current time so repeated runs produce different datasets.
func NewLogGenerator(seed int64) *LogGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &LogGenerator{
		rand: rand.New(rand.NewSource(seed)),

		names: []string{
			"alice.wong", "bob.mercer", "carol.diaz", "dan.okafor",
			"erin.walsh", "frank.liu", "grace.novak", "henry.patel",
			"irene.kim", "jack.moreau", "kate.silva", "liam.byrne",
		},
		corpDomains: []string{
			"acmecorp.com", "partner.acmecorp.com", "acme-legal.com",
			"vendorone.net", "trustedsupplier.co",
		},
		publicDomains: []string{
			"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "protonmail.com",
		},
		departments: []string{
			"Marketing", "Engineering", "Operations", "Legal", "Support",
		},
		riskyDepts: []string{
			"Finance", "HR", "Executive",
		},
		bunits: []string{
			"EMEA", "APAC", "AMER",
		},
		normalSubjects: []string{
			"Weekly status report",
			"Meeting notes from Tuesday",
			"Q3 planning deck",
			"Invoice for PO-4821",
			"Updated project timeline",
			"Customer onboarding checklist",
			"Re: vendor contract review",
		},
		riskySubjects: []string{
			"Urgent: payroll export needed today",
			"Confidential - salary bands",
			"Password list backup",
			"Personal copy of client database",
			"Full customer export before Friday",
		},
		normalFiles: []string{
			"report.pdf", "notes.docx", "deck.pptx", "timeline.xlsx", "",
		},
		riskyFiles: []string{
			"payroll_export.xlsx,employees.csv",
			"backup.zip",
			"customer_db.sql",
			"credentials.xlsx",
			"export.csv,contacts.csv,deals.csv",
		},
		justifications: []string{
			"Sharing with client as agreed",
			"Vendor requested a copy",
			"", "", "",
			"Needed for offsite review",
		},
	}
}

// NormalRow produces a routine business email record.
func (g *LogGenerator) NormalRow() []string {
	name := g.pick(g.names)
	domain := g.pick(g.corpDomains)
	sent := g.businessHours()
	return g.row(
		name+"@acmecorp.com",
		g.pick(g.names)+"@"+domain,
		domain,
		g.pick(g.normalSubjects),
		g.pick(g.normalFiles),
		"",
		g.pick(g.departments),
		"staff",
		false,
		0,
		sent,
	)
}

// RiskyRow produces a record with several risk markers: a public
// recipient domain, sensitive attachments, off-hours timing and
// sometimes a leaver flag.
func (g *LogGenerator) RiskyRow() []string {
	name := g.pick(g.names)
	domain := g.pick(g.publicDomains)
	sent := g.offHours()
	leaver := g.rand.Float64() < 0.4
	priorFlags := 0
	if g.rand.Float64() < 0.3 {
		priorFlags = 1 + g.rand.Intn(3)
	}
	return g.row(
		name+"@acmecorp.com",
		strings.Split(name, ".")[0]+"@"+domain,
		domain,
		g.pick(g.riskySubjects),
		g.pick(g.riskyFiles),
		g.pick(g.justifications),
		g.pick(g.riskyDepts),
		"staff",
		leaver,
		priorFlags,
		sent,
	)
}

func (g *LogGenerator) row(sender, recipient, domain, subject, attachments, justification, dept, accountType string, leaver bool, priorFlags int, sent time.Time) []string {
	g.next++
	return []string{
		fmt.Sprintf("REC-%05d", g.next),
		sender,
		recipient,
		domain,
		subject,
		attachments,
		justification,
		dept,
		g.pick(g.bunits),
		accountType,
		strconv.FormatBool(leaver),
		strconv.Itoa(priorFlags),
		sent.Format(time.RFC3339),
	}
}

func (g *LogGenerator) pick(items []string) string {
	return items[g.rand.Intn(len(items))]
}

func (g *LogGenerator) businessHours() time.Time {
	base := time.Now().AddDate(0, 0, -g.rand.Intn(30))
	return time.Date(base.Year(), base.Month(), base.Day(),
		9+g.rand.Intn(8), g.rand.Intn(60), 0, 0, time.Local)
}

func (g *LogGenerator) offHours() time.Time {
	base := time.Now().AddDate(0, 0, -g.rand.Intn(30))
	hour := g.rand.Intn(6) // 22:00-03:59
	hour = (22 + hour) % 24
	return time.Date(base.Year(), base.Month(), base.Day(),
		hour, g.rand.Intn(60), 0, 0, time.Local)
}

func init() {
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 200, "Number of records to generate")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "testdata.csv", "Output CSV file")
	generateCmd.Flags().Float64VarP(&generateSplit, "risky-ratio", "r", 0.1, "Ratio of risky records (0.0-1.0)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Random seed (0 = time-based)")
}
