package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/karthikraju391/rentchat/api"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/normalize"
	"github.com/spf13/cobra"
)

var carsCmd = &cobra.Command{
	Use:   "cars",
	Short: "List or search the car catalog",
	Long: `Fetches the car catalog from the backend and prints it as a table.
Without filters every listing is shown; --owner lists one user's cars.
--search narrows the fetched listings by name or description and --sort orders
them by daily price.`,
	Args: cobra.NoArgs,
	RunE: runCars,
}

func init() {
	f := carsCmd.Flags()
	f.String("location", "", "location substring")
	f.String("type", "", "car type substring")
	f.Float64("max-price", 0, "maximum price per day")
	f.String("owner", "", "list the cars of this owner email")
	f.String("search", "", "keep cars whose name or description contains this text")
	f.String("sort", "", "order by price per day: asc or desc")
}

func runCars(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	location, _ := f.GetString("location")
	carType, _ := f.GetString("type")
	maxPrice, _ := f.GetFloat64("max-price")
	owner, _ := f.GetString("owner")
	search, _ := f.GetString("search")
	sortFlag, _ := f.GetString("sort")
	order, err := models.ParsePriceOrder(sortFlag)
	if err != nil {
		return err
	}

	client := api.New(cfg.Client.APIURL, api.WithLogger(logger), api.WithTimeout(cfg.Client.RequestTimeout))
	filter := models.CarFilter{Location: location, CarType: carType, MaxPrice: maxPrice}

	var res normalize.Result
	switch {
	case owner != "":
		res, err = client.UserCars(cmd.Context(), owner)
	case !filter.Empty():
		res, err = client.SearchCars(cmd.Context(), filter)
	default:
		res, err = client.ListCars(cmd.Context())
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tLOCATION\tPRICE/DAY\tOWNER")
	rows := res.Rows()
	if res.Kind == normalize.Ok {
		rows = models.MatchCars(rows, search)
		models.SortByPrice(rows, order)
		if len(rows) == 0 {
			rows = []models.Car{normalize.Placeholder()}
		}
	}
	for _, c := range rows {
		if c.Placeholder {
			fmt.Fprintf(tw, "-\t%s\t\t\t\t\n", c.Name)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%s\n", c.ID, c.Name, c.Category, c.Location, c.PricePerDay, c.OwnerEmail)
	}
	return tw.Flush()
}
