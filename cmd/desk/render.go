package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

func printSnapshot(w io.Writer, snap domain.Snapshot, canSubmit bool) {
	if snap.Error != "" {
		fmt.Fprintf(w, "error: %s\n", snap.Error)
	}
	if snap.Notice != "" {
		fmt.Fprintf(w, "notice: %s\n", snap.Notice)
	}
	if snap.Current == nil {
		fmt.Fprintln(w, "no current document")
		return
	}
	printDocument(w, snap.Current)
	fmt.Fprintf(w, "can submit: %t\n", canSubmit)
}

func printDocument(w io.Writer, doc *domain.Document) {
	presentation := domain.PresentStatus(doc.Status)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "document\t%s (%s)\n", doc.ID, doc.Filename)
	fmt.Fprintf(tw, "status\t%s %s\n", presentation.Label, presentation.Color)
	fmt.Fprintf(tw, "confidence\t%s%%\n", strconv.FormatFloat(doc.ConfidencePercent(), 'f', 1, 64))
	for _, name := range domain.CorrectableFields {
		value := doc.Field(name)
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, value)
	}
	if doc.Currency != "" {
		fmt.Fprintf(tw, "currency\t%s\n", doc.Currency)
	}
	_ = tw.Flush()
}

func printRecent(w io.Writer, docs []domain.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "no documents")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tSTATUS\tTOTAL\tCREATED")
	for i := range docs {
		doc := &docs[i]
		created := "-"
		if !doc.CreatedAt.IsZero() {
			created = doc.CreatedAt.Local().Format(time.DateTime)
		}
		total := doc.Field(domain.FieldTotalAmount)
		if total == "" {
			total = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", doc.ID, doc.Filename, domain.PresentStatus(doc.Status).Label, total, created)
	}
	_ = tw.Flush()
}

func printJournal(w io.Writer, entries []domain.JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no journal entries")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tACTOR\tFIELD\tVALUE\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Action, e.ActorID, e.Field, e.Value, e.Detail)
	}
	_ = tw.Flush()
}
