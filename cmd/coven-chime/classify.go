// ABOUTME: classify subcommand: runs the chime classifier over element descriptions
// ABOUTME: Used to tune the chime policy offline against captured page markup

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-chime/internal/chime"
	"github.com/2389/coven-chime/internal/config"
)

type classifyOptions struct {
	file     string
	asJSON   bool
	keywords []string
	folders  []string
	minSize  float64
}

// classification is one line of classify output.
type classification struct {
	Index  int    `json:"index"`
	Tag    string `json:"tag"`
	ID     string `json:"id,omitempty"`
	Src    string `json:"src,omitempty"`
	Chime  bool   `json:"chime"`
	Rule   string `json:"rule,omitempty"`
	Nested int    `json:"nested,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	opts := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify audio element descriptions",
		Long: `Read a JSON array of element descriptions (or a single element) and
report which would be treated as system chime audio, and by which rule.

The policy comes from the config's chime section when a config file is
present; flags override it.

Example input:

  [{"tag": "audio", "id": "newmail-sound", "width": 0, "height": 0},
   {"tag": "audio", "controls": true, "width": 300, "height": 40,
    "src": "/media/podcast.mp3"}]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClassify(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "-", "Input file (- for stdin)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print results as JSON lines")
	cmd.Flags().StringSliceVar(&opts.keywords, "keywords", nil, "Override id/class keywords")
	cmd.Flags().StringSliceVar(&opts.folders, "asset-folders", nil, "Override built-in asset folders")
	cmd.Flags().Float64Var(&opts.minSize, "min-size", 0, "Override the tiny-element threshold in pixels")
	return cmd
}

// classifyPolicy builds the policy from an optional config section plus flags.
func classifyPolicy(section *config.ChimeConfig, opts *classifyOptions) chime.Policy {
	p := chime.DefaultPolicy()
	if section != nil {
		p = p.Override(section.Keywords, section.AssetFolders, section.MinSize)
	}
	return p.Override(opts.keywords, opts.folders, opts.minSize)
}

// decodeElements accepts either a JSON array of elements or a single object.
func decodeElements(data []byte) ([]*chime.Element, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("no input")
	}
	if strings.HasPrefix(trimmed, "{") {
		var e chime.Element
		if err := json.Unmarshal([]byte(trimmed), &e); err != nil {
			return nil, fmt.Errorf("parsing element: %w", err)
		}
		return []*chime.Element{&e}, nil
	}
	var elems []*chime.Element
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
		return nil, fmt.Errorf("parsing elements: %w", err)
	}
	return elems, nil
}

// classifyElements classifies each element, descending into containers the
// way the client-side observer does.
func classifyElements(p chime.Policy, elems []*chime.Element) []classification {
	out := make([]classification, 0, len(elems))
	for i, e := range elems {
		if e == nil {
			continue
		}
		c := classification{Index: i, Tag: e.Tag, ID: e.ID, Src: e.EffectiveSrc()}
		if e.IsAudio() {
			ok, rule := p.Classify(e)
			c.Chime, c.Rule = ok, string(rule)
		} else {
			for _, a := range e.Descendants("audio") {
				c.Nested++
				if ok, rule := p.Classify(a); ok && !c.Chime {
					c.Chime, c.Rule = true, string(rule)
				}
			}
		}
		out = append(out, c)
	}
	return out
}

func runClassify(cmd *cobra.Command, opts *classifyOptions) error {
	var in io.Reader = cmd.InOrStdin()
	if opts.file != "-" {
		f, err := os.Open(opts.file)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	elems, err := decodeElements(data)
	if err != nil {
		return err
	}

	// the config is optional here; classify works without a server setup
	var section *config.ChimeConfig
	if cfg, _, err := loadConfig(); err == nil {
		section = &cfg.Chime
	}

	results := classifyElements(classifyPolicy(section, opts), elems)
	out := cmd.OutOrStdout()

	if opts.asJSON {
		enc := json.NewEncoder(out)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	for _, r := range results {
		label := r.Tag
		if r.ID != "" {
			label += "#" + r.ID
		}
		if r.Chime {
			green.Fprintf(out, "  chime  ")
			fmt.Fprintf(out, "[%d] %s (%s)", r.Index, label, r.Rule)
		} else {
			gray.Fprintf(out, "  pass   ")
			fmt.Fprintf(out, "[%d] %s", r.Index, label)
		}
		if r.Src != "" {
			gray.Fprintf(out, " %s", r.Src)
		}
		fmt.Fprintln(out)
	}
	return nil
}
