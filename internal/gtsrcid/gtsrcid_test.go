// Public domain.

package gtsrcid_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/soniakeys/srcid/internal/gtsrcid"
	"github.com/soniakeys/srcid/internal/srcclass"
)

func class(t *testing.T, yml string) *srcclass.Class {
	t.Helper()
	f, err := srcclass.Decode([]byte(yml))
	if err != nil {
		t.Fatal(err)
	}
	c, err := f.Normalize("/cat")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func ExampleParams_Args() {
	p := gtsrcid.Params{
		SrcCatName:   "lat.fits",
		SrcCatPrefix: "LAT",
		CptCatPrefix: "PUL",
		ProbPrior:    "nsrc() / ncpt()",
		MaxNumCpt:    100,
		Mode:         "ql",
	}
	p.Select[0] = `$@PUL_NAME$ == "J0534+2200"`
	a := p.Args()
	fmt.Println(len(a))
	fmt.Println(a[0])
	fmt.Println(a[19])
	fmt.Println(a[29])
	fmt.Println(strings.Join(a[31:], " "))
	// Output:
	// 37
	// srcCatName="lat.fits"
	// select01="$@PUL_NAME$ == \"J0534+2200\""
	// probPrior="nsrc() / ncpt()"
	// maxNumCpt=100 fom="" chatter=0 clobber=no debug=no mode=ql
}

func TestArgsOrder(t *testing.T) {
	p := gtsrcid.FromClass(class(t, "catid: EGR\ncatname: gamma-egr.fits\n"),
		"lat.fits", "LAT")
	want := []string{"srcCatName", "srcCatPrefix", "srcCatQty",
		"srcPosError", "cptCatName", "cptCatPrefix", "cptCatQty",
		"cptPosError", "cptDensFile", "outCatName"}
	for i := 1; i <= 9; i++ {
		want = append(want, fmt.Sprintf("outCatQty%02d", i))
	}
	for i := 1; i <= 9; i++ {
		want = append(want, fmt.Sprintf("select%02d", i))
	}
	want = append(want, "probMethod", "probPrior", "probThres",
		"maxNumCpt", "fom", "chatter", "clobber", "debug", "mode")
	a := p.Args()
	if len(a) != len(want) {
		t.Fatalf("%d args, want %d", len(a), len(want))
	}
	for i, k := range want {
		if !strings.HasPrefix(a[i], k+"=") {
			t.Errorf("arg %d = %q, want key %s", i, a[i], k)
		}
	}
	if a[7] != "cptPosError=0.0002777777777777778" {
		t.Errorf("cptPosError arg %q", a[7])
	}
	if a[4] != `cptCatName="/cat/gamma-egr.fits"` || a[9] != `outCatName="egr.fits"` {
		t.Errorf("catalogue args %q %q", a[4], a[9])
	}
	if a[len(a)-3] != "clobber=yes" {
		t.Errorf("clobber arg %q", a[len(a)-3])
	}
}

func TestExpand(t *testing.T) {
	p := gtsrcid.FromClass(class(t, `
catid: EGR
catname: gamma-egr.fits
new_quantity: ["ANGSEP_SDEV = 2.0 * ANGSEP / @EGR_THETA95"]
selection: ["ANGSEP < 0.5 || ANGSEP_SDEV < 3.0"]
`), "lat.fits", "LAT")
	p.Expand([]string{"@EGR_THETA", "@EGR_THETA95", "@LAT_NAME"})
	if p.OutCatQty[0] != "ANGSEP_SDEV = 2.0 * ANGSEP / $@EGR_THETA95$" {
		t.Errorf("quantity %q", p.OutCatQty[0])
	}
	if p.Select[0] != "ANGSEP < 0.5 || ANGSEP_SDEV < 3.0" || p.Select[1] != "" {
		t.Errorf("selections %q", p.Select)
	}
}

func TestResultErr(t *testing.T) {
	if err := (gtsrcid.Result{}).Err(); err != nil {
		t.Fatal(err)
	}
	if err := (gtsrcid.Result{ExitStatus: 2}).Err(); !errors.Is(err, gtsrcid.ErrInvocation) {
		t.Fatalf("err = %v", err)
	}
}

// fakeEngine writes a shell script standing in for the engine.
func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh")
	}
	path := filepath.Join(t.TempDir(), "gtsrcid")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExec(t *testing.T) {
	dir := t.TempDir()
	// a stale log from an earlier run is overwritten
	if err := os.WriteFile(filepath.Join(dir, "pul.log"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	e := &gtsrcid.Exec{
		Command: fakeEngine(t, `echo "$@" > gtsrcid.log
echo running
`),
		Dir: dir,
		Log: zap.NewNop().Sugar(),
	}
	p := gtsrcid.FromClass(class(t, "catid: PUL\ncatname: obj-pulsar.fits\n"),
		"lat.fits", "LAT")
	r, err := e.Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if r.ExitStatus != 0 || r.Err() != nil {
		t.Fatalf("status %d", r.ExitStatus)
	}
	if !strings.Contains(r.Log, `cptCatPrefix="PUL"`) {
		t.Errorf("log %q", r.Log)
	}
	if r.LogPath != filepath.Join(dir, "pul.log") {
		t.Errorf("log path %q", r.LogPath)
	}
	b, err := os.ReadFile(r.LogPath)
	if err != nil || string(b) != r.Log {
		t.Errorf("kept log %q, %v", b, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "gtsrcid.log")); !os.IsNotExist(err) {
		t.Error("engine log not renamed")
	}
}

func TestExecFailure(t *testing.T) {
	dir := t.TempDir()
	e := &gtsrcid.Exec{
		Command: fakeEngine(t, "echo bad catalogue\nexit 3\n"),
		Dir:     dir,
	}
	p := gtsrcid.FromClass(class(t, "catid: SNR\ncatname: obj-snr.fits\n"),
		"lat.fits", "LAT")
	r, err := e.Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if r.ExitStatus != 3 || !errors.Is(r.Err(), gtsrcid.ErrInvocation) {
		t.Fatalf("status %d err %v", r.ExitStatus, r.Err())
	}
	// no engine log, output kept instead
	if r.Log != "bad catalogue\n" {
		t.Errorf("log %q", r.Log)
	}
	if _, err := os.Stat(filepath.Join(dir, "snr.log")); err != nil {
		t.Error(err)
	}
}

func TestExecMissingCommand(t *testing.T) {
	e := &gtsrcid.Exec{Command: filepath.Join(t.TempDir(), "none"), Dir: t.TempDir()}
	_, err := e.Run(context.Background(), gtsrcid.Params{CptCatPrefix: "X"})
	if !errors.Is(err, gtsrcid.ErrInvocation) {
		t.Fatalf("err = %v", err)
	}
}
