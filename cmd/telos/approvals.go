// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/runtime"
)

func runApprovals(ctx context.Context, global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: telos approvals <list|approve|reject> ..."))
	}
	switch args[0] {
	case "list":
		approvalsList(ctx, global, args[1:])
	case "approve":
		approvalsResolve(ctx, global, args[1:], governance.StatusApproved)
	case "reject":
		approvalsResolve(ctx, global, args[1:], governance.StatusRejected)
	default:
		fatal(fmt.Errorf("unknown approvals subcommand %q", args[0]))
	}
}

func approvalsList(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("approvals list", flag.ContinueOnError)
	status := cmd.String("status", "", "Filter by status (pending, approved, rejected, expired)")
	runID := cmd.String("run", "", "Filter by run id")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	var items []*governance.ApprovalItem
	if global.APIURL != "" {
		query := url.Values{}
		if *status != "" {
			query.Set("status", *status)
		}
		if *runID != "" {
			query.Set("run_id", *runID)
		}
		var payload struct {
			Approvals []*governance.ApprovalItem `json:"approvals"`
		}
		if err := apiGet(ctx, global, "/v1/approvals?"+query.Encode(), &payload); err != nil {
			fatal(err)
		}
		items = payload.Approvals
	} else {
		store, closeStore := openLocalApprovals(global)
		defer closeStore()
		var err error
		items, err = store.List(ctx, governance.Filter{
			Status: governance.ApprovalStatus(*status),
			RunID:  *runID,
		})
		if err != nil {
			fatal(err)
		}
	}

	if global.JSON {
		printJSON(map[string]any{"approvals": items})
		return
	}
	if len(items) == 0 {
		fmt.Println("No approvals")
		return
	}
	writer := newTabWriter()
	writeRow(writer, "ID", "ACTION", "STATUS", "RUN", "CREATED", "EXPIRES", "REASON")
	for _, item := range items {
		writeRow(writer,
			item.ID,
			item.Action,
			string(item.Status),
			item.RunID,
			formatTime(item.CreatedAt),
			formatTime(item.ExpiresAt),
			truncateCell(item.Reason, 40),
		)
	}
	_ = writer.Flush()
}

func approvalsResolve(ctx context.Context, global globalFlags, args []string, status governance.ApprovalStatus) {
	verb := "approve"
	if status == governance.StatusRejected {
		verb = "reject"
	}
	cmd := flag.NewFlagSet("approvals "+verb, flag.ContinueOnError)
	reason := cmd.String("reason", "", "Reason recorded with the decision")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() != 1 {
		fatal(fmt.Errorf("usage: telos approvals %s <id> [-reason <text>]", verb))
	}
	id := cmd.Arg(0)

	why := strings.TrimSpace(*reason)
	if why == "" {
		why = fmt.Sprintf("%s via cli", status)
	}

	if global.APIURL != "" {
		var item governance.ApprovalItem
		path := fmt.Sprintf("/v1/approvals/%s:%s", url.PathEscape(id), verb)
		if err := apiPost(ctx, global, path, map[string]string{"reason": why}, &item); err != nil {
			fatal(err)
		}
		printResolved(global, &item)
		return
	}

	store, closeStore := openLocalApprovals(global)
	defer closeStore()
	ok, err := store.Resolve(ctx, id, status, why)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fatal(fmt.Errorf("approval %q is not pending", id))
	}
	item, err := store.Get(ctx, id)
	if err != nil {
		fatal(err)
	}
	printResolved(global, item)
}

func printResolved(global globalFlags, item *governance.ApprovalItem) {
	if global.JSON {
		printJSON(item)
		return
	}
	fmt.Printf("%s: %s (%s)\n", item.ID, item.Status, item.Reason)
}

// openLocalApprovals gives direct store access when no admin API is
// configured. Only the sqlite store survives across processes; a memory
// store here never sees a running agent's items.
func openLocalApprovals(global globalFlags) (governance.ApprovalStore, func()) {
	cfg := loadConfig(global)
	if !strings.EqualFold(cfg.Approvals.Store, "sqlite") {
		fmt.Fprintln(os.Stderr, "warning: approvals.store is not sqlite; this process sees its own empty queue (use --api to reach a running server)")
	}
	store, closeStore, err := runtime.OpenApprovalStore(cfg)
	if err != nil {
		fatal(err)
	}
	return store, func() { _ = closeStore() }
}

func apiGet(ctx context.Context, global globalFlags, path string, out any) error {
	return apiDo(ctx, global, http.MethodGet, path, nil, out)
}

func apiPost(ctx context.Context, global globalFlags, path string, body, out any) error {
	return apiDo(ctx, global, http.MethodPost, path, body, out)
}

func apiDo(ctx context.Context, global globalFlags, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(global.APIURL, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &problem) == nil && problem.Detail != "" {
			return fmt.Errorf("%s: %s", problem.Title, problem.Detail)
		}
		return fmt.Errorf("api returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
