// Command globe-dump builds the membership scene offline and prints one of
// the MembershipService documents as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/membership-globe/core"
	"github.com/signalsfoundry/membership-globe/internal/api"
	"github.com/signalsfoundry/membership-globe/internal/logging"
	"github.com/signalsfoundry/membership-globe/internal/refdata"
	"github.com/signalsfoundry/membership-globe/internal/scene"
	"github.com/signalsfoundry/membership-globe/kb"
	"github.com/signalsfoundry/membership-globe/model"
)

var errUsage = errors.New("usage")

type options struct {
	view              string // links | tree | orgs | org | country
	orgs              []string
	target            string
	countriesPath     string
	organizationsPath string
	maxActive         int
	pretty            bool
}

func main() {
	view := flag.String("view", "links", "Document to print: links, tree, orgs, org or country")
	orgs := flag.String("orgs", "", "Comma separated organizations to activate")
	target := flag.String("target", "", "Organization (tree, org) or country code (country)")
	countries := flag.String("countries", "", "Country JSON file; the embedded dataset is used when empty")
	organizations := flag.String("organizations", "", "Organization YAML file; the embedded metadata is used when empty")
	maxActive := flag.Int("max-active", kb.DefaultMaxActive, "Selection limit")
	pretty := flag.Bool("pretty", true, "Indent the JSON output")
	flag.Parse()

	opts := options{
		view:              *view,
		orgs:              splitOrgs(*orgs),
		target:            *target,
		countriesPath:     *countries,
		organizationsPath: *organizations,
		maxActive:         *maxActive,
		pretty:            *pretty,
	}

	log := logging.NewFromEnv()
	if err := dump(context.Background(), os.Stdout, opts, log); err != nil {
		fmt.Fprintf(os.Stderr, "globe-dump: %v\n", err)
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func splitOrgs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dump(ctx context.Context, w io.Writer, opts options, log logging.Logger) error {
	ds, err := refdata.Load(opts.countriesPath, opts.organizationsPath)
	if err != nil {
		return err
	}
	store := kb.NewKnowledgeBase(kb.WithMaxActive(opts.maxActive))
	if err := refdata.Populate(store, ds); err != nil {
		return err
	}
	ids := make([]model.OrganizationID, len(opts.orgs))
	for i, o := range opts.orgs {
		ids[i] = model.ParseOrganizationID(o)
	}
	if err := store.SetActive(ids); err != nil {
		return err
	}

	st := scene.NewState(store, scene.WithLogger(log))
	if err := st.Recompute(ctx); err != nil {
		return err
	}

	doc, err := document(ctx, store, st, opts)
	if err != nil {
		return err
	}

	marshal := protojson.MarshalOptions{}
	if opts.pretty {
		marshal.Indent = "  "
	}
	out, err := marshal.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", opts.view, err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func document(ctx context.Context, store *kb.KnowledgeBase, st *scene.State, opts options) (*structpb.Struct, error) {
	switch opts.view {
	case "links":
		return api.EncodeLinks(st.Snapshot(), core.DefaultStripeCount)
	case "orgs":
		return api.EncodeOrganizations(store.ListOrganizations(), store.IsActive, st.Index().Size)
	case "tree", "org":
		org := model.ParseOrganizationID(opts.target)
		if org == "" {
			return nil, fmt.Errorf("%w: -target organization is required for view %q", errUsage, opts.view)
		}
		if opts.view == "org" {
			view, err := st.Organization(org)
			if err != nil {
				return nil, err
			}
			return api.EncodeOrganization(view)
		}
		tree, err := st.Tree(ctx, org)
		if err != nil {
			return nil, err
		}
		return api.EncodeTree(org, tree)
	case "country":
		code := strings.ToUpper(strings.TrimSpace(opts.target))
		if code == "" {
			return nil, fmt.Errorf("%w: -target country code is required", errUsage)
		}
		rec, orgs, err := st.CountryOrganizations(code)
		if err != nil {
			return nil, err
		}
		positions, err := st.ActiveMemberships(ctx, rec.Code)
		if err != nil {
			return nil, err
		}
		return api.EncodeCountry(rec, orgs, st.Params(), positions)
	default:
		return nil, fmt.Errorf("%w: unknown view %q", errUsage, opts.view)
	}
}
