package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"loopsched/internal/config"
	"loopsched/internal/storage"
	logx "loopsched/pkg/logx"
)

// PrintHistory writes the newest fires of job (all jobs when job is empty
// or "all") as a table. The journal is opened read-only; a daemon that has
// never run leaves nothing to show and nothing is created.
func PrintHistory(ctx context.Context, cfgPath, job string, limit int, w io.Writer) error {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	sc, err := cfg.StorageSettings()
	if err != nil {
		return err
	}
	sc.ReadOnly = true
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return err
	}
	if st == nil {
		return storage.ErrDisabled
	}
	defer st.Close()

	if job == "all" {
		job = ""
	}
	recs, err := st.RecentFires(ctx, job, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tJOB\tACTION\tTOOK\tRESULT")
	for _, r := range recs {
		result := "ok"
		if !r.OK {
			result = "error: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
			r.At.Local().Format(time.DateTime), r.Job, r.Action, r.TookMS, result)
	}
	return tw.Flush()
}
