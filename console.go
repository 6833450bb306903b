package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"chord_ring/chord"
	"chord_ring/keys"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"golang.org/x/xerrors"
)

const (
	actionInfo       = "🪐 show predecessor, successor, and finger table"
	actionLookupKey  = "🔑 look up a hex key"
	actionLookupName = "🔤 look up a name"
	actionLookupFile = "📄 look up every name in a file"
	actionExit       = "👋 exit"
)

// console lets an operator inspect node and run lookups until they exit.
func console(ctx context.Context, node *chord.Node) {
	prompt := &survey.Select{
		Message: "What do you want to do ?",
		Options: []string{actionInfo, actionLookupKey, actionLookupName, actionLookupFile, actionExit},
	}

	var action string
	for {
		if err := survey.AskOne(prompt, &action); err != nil {
			fmt.Println(err)
			return
		}

		var err error
		switch action {
		case actionInfo:
			showInfo(node)
		case actionLookupKey:
			err = lookupKey(ctx, node)
		case actionLookupName:
			err = lookupName(ctx, node)
		case actionLookupFile:
			err = lookupFile(ctx, node)
		case actionExit:
			color.HiYellow("=======  Bye 👋")
			return
		}
		if err != nil {
			color.Red("%v\n", err)
		}
	}
}

func showInfo(node *chord.Node) {
	color.Yellow("\n%s\n", fingerTree(node.Info(), node.Fingers()))
}

func hexValidator(val interface{}) error {
	s, ok := val.(string)
	if !ok {
		return xerrors.Errorf("invalid type %T", val)
	}
	if _, err := keys.Reduce(s, chord.MaxBits); err != nil {
		return err
	}
	return nil
}

func lookupKey(ctx context.Context, node *chord.Node) error {
	var hexKey string
	err := survey.AskOne(
		&survey.Input{Message: "Enter the key in hexadecimal form: "},
		&hexKey,
		survey.WithValidator(hexValidator))
	if err != nil {
		return xerrors.Errorf("failed to get the answer: %v", err)
	}
	return printLookup(ctx, node, hexKey, hexKey)
}

func lookupName(ctx context.Context, node *chord.Node) error {
	var name string
	err := survey.AskOne(
		&survey.Input{Message: "Enter the name to look up: "},
		&name,
		survey.WithValidator(survey.Required))
	if err != nil {
		return xerrors.Errorf("failed to get the answer: %v", err)
	}
	return printLookup(ctx, node, name, keys.FromName(name))
}

func lookupFile(ctx context.Context, node *chord.Node) error {
	var path string
	err := survey.AskOne(
		&survey.Input{Message: "Enter the path of the key file: "},
		&path,
		survey.WithValidator(survey.Required))
	if err != nil {
		return xerrors.Errorf("failed to get the answer: %v", err)
	}

	load := keys.LoadFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		load = keys.LoadJSON
	}
	entries, err := load(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := printLookup(ctx, node, e.Name, e.Key); err != nil {
			color.Red("%s: %v\n", e.Name, err)
		}
	}
	return nil
}

func printLookup(ctx context.Context, node *chord.Node, label, hexKey string) error {
	id, err := keys.Reduce(hexKey, node.Ring().Bits())
	if err != nil {
		return err
	}
	owner, err := node.FindSuccessor(ctx, chord.ID(id))
	if err != nil {
		return xerrors.Errorf("lookup of %s failed: %w", label, err)
	}
	color.Green("=======  %s -> id %d -> %s\n", label, id, owner)
	return nil
}
