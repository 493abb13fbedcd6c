// Command sbson-encode converts JSON documents to SBSON and inspects the
// result. It consumes only the public sbson API.
//
//	sbson-encode encode input.json output.sbson
//	sbson-encode inspect output.sbson BLARG 0
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/Schaudge/sbson"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		klog.Exitf("%v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sbson-encode",
		Usage: "convert JSON documents to SBSON and inspect the result",
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "read a JSON file and write it as an SBSON document",
				ArgsUsage: "<input.json> <output.sbson>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "chd-threshold",
						Usage: "minimum map size encoded with the perfect-hash layout",
						Value: sbson.DefaultCHDThreshold,
					},
				},
				Action: encodeAction,
			},
			{
				Name:      "inspect",
				Usage:     "descend into a document and print the node at the given path",
				ArgsUsage: "<input.sbson> [segment...]",
				Action:    inspectAction,
			},
		},
	}
}

func encodeAction(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("usage: encode <input.json> <output.sbson>", 1)
	}
	inPath, outPath := c.Args().Get(0), c.Args().Get(1)

	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	parseStart := time.Now()
	dec := jsoniter.NewDecoder(in)
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return fmt.Errorf("parsing %s: %w", inPath, err)
	}
	value, err := fromJSON(parsed)
	if err != nil {
		return err
	}
	parseElapsed := time.Since(parseStart)

	encodeStart := time.Now()
	doc, err := sbson.MarshalWithOptions(value, sbson.SerializationOptions{
		CHDThreshold: c.Int("chd-threshold"),
	})
	if err != nil {
		return err
	}
	encodeElapsed := time.Since(encodeStart)

	if err := os.WriteFile(outPath, doc, 0o644); err != nil {
		return err
	}
	klog.Infof("encoded %s (%d bytes) in %v (parse %v), wrote %s", inPath, len(doc), encodeElapsed, parseElapsed, outPath)
	return nil
}

func inspectAction(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("usage: inspect <input.sbson> [segment...]", 1)
	}
	storage, err := sbson.Load(c.Args().Get(0))
	if err != nil {
		return err
	}
	cur, err := sbson.NewCursor(storage)
	if err != nil {
		return err
	}

	var path []sbson.PathSegment
	for _, arg := range c.Args().Slice()[1:] {
		if index, err := strconv.Atoi(arg); err == nil {
			path = append(path, sbson.Index(index))
		} else {
			path = append(path, sbson.Key(arg))
		}
	}
	node, err := cur.Goto(path...)
	if err != nil {
		return err
	}

	fmt.Printf("type: %s\n", node.ElementType())
	if node.ElementType().IsContainer() {
		fmt.Printf("children: %d\n", node.ChildrenCount())
		return nil
	}
	value, err := sbson.Decode(node)
	if err != nil {
		return err
	}
	fmt.Printf("value: %v\n", value)
	return nil
}

// fromJSON rewrites a jsoniter value tree into Marshal's value domain.
// Integral numbers in int64 range become Int64 nodes; everything else
// numeric becomes a Double.
func fromJSON(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, string:
		return v, nil
	case json.Number:
		if n, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("unrepresentable number %q: %w", v.String(), err)
		}
		return f, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			item, err := fromJSON(item)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			item, err := fromJSON(item)
			if err != nil {
				return nil, err
			}
			out[k] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected JSON value of type %T", v)
}
