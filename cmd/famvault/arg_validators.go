package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"famvault/internal/models"
)

// collectionArgs requires exactly count args, the first naming a collection.
func collectionArgs(count int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != count {
			return fmt.Errorf("usage: %s", cmd.UseLine())
		}
		return validateCollection(args[0])
	}
}

func validateCollection(name string) error {
	if _, ok := models.KindFromCollection(name); !ok {
		return fmt.Errorf("unknown collection %q (want contacts, children, documents or users)", name)
	}
	return nil
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return fmt.Errorf("%s", message)
		}
		return nil
	}
}
