package recorder

import (
	"fmt"
	"io"
	"os"

	"github.com/tsawler/go-trainlog/tensor"
)

// GANLoss holds the three losses of an encoder-augmented GAN step
type GANLoss struct {
	Generator     float64
	Discriminator float64
	Encoder       float64
}

// DisplayStatus prints the position in the run and the current loss to w
// (stdout when nil). A GANLoss, [3]float64 or three element []float64 is
// printed as generator, discriminator and encoder losses, in that order;
// anything else must be a single scalar.
func DisplayStatus(w io.Writer, epoch, numEpochs, batch, numBatches int, loss interface{}) error {
	if w == nil {
		w = os.Stdout
	}

	var gan *GANLoss
	switch v := loss.(type) {
	case GANLoss:
		gan = &v
	case *GANLoss:
		gan = v
	case [3]float64:
		gan = &GANLoss{Generator: v[0], Discriminator: v[1], Encoder: v[2]}
	case []float64:
		if len(v) == 3 {
			gan = &GANLoss{Generator: v[0], Discriminator: v[1], Encoder: v[2]}
		}
	}

	if gan != nil {
		_, err := fmt.Fprintf(w, "Epoch: [%d/%d], Batch Num: [%d/%d]\nGenerator=%.4f, Discriminator=%.4f, Encoder=%.4f\n",
			epoch, numEpochs, batch, numBatches, gan.Generator, gan.Discriminator, gan.Encoder)
		return err
	}

	value, err := tensor.ToScalar(loss)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Epoch: [%d/%d], Batch Num: [%d/%d], Loss:%.4f\n", epoch, numEpochs, batch, numBatches, value)
	return err
}
