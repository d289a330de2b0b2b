package dmrg_test

import (
	"fmt"
	"log"

	"github.com/fumin/mpopt/dmrg"
	"github.com/fumin/mpopt/models"
	"github.com/fumin/mpopt/mps"
)

func Example() {
	// Ising chain deep in the ferromagnetic phase, starting from the product state |++++>.
	h, err := models.Ising(4, 1, 0.031623)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	init, err := mps.Build(h.PhysicalDims(), 1, mps.InitProduct, nil)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	opt, err := dmrg.New(dmrg.NewOptions().MaxBondDim(8))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	res, err := opt.Run(h, init)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("Ground energy %.4f\n", res.Energy)
	fmt.Printf("State %v\n", res.State)

	// Output:
	// Ground energy -3.0015
	// State converged
}
